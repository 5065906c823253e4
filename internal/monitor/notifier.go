// internal/monitor/notifier.go
package monitor

// ExitNotifier получает события выхода. Вызовы идут из горутин опроса,
// реализация не должна блокироваться надолго.
type ExitNotifier interface {
	OnExit(result ExitResult)
	OnExitFailed(position Position, err error)
}

// MultiNotifier рассылает события нескольким получателям.
type MultiNotifier []ExitNotifier

func (m MultiNotifier) OnExit(result ExitResult) {
	for _, n := range m {
		if n != nil {
			n.OnExit(result)
		}
	}
}

func (m MultiNotifier) OnExitFailed(position Position, err error) {
	for _, n := range m {
		if n != nil {
			n.OnExitFailed(position, err)
		}
	}
}

package reconcile

// Observer is notified after engine operations complete.
// Implementations must not call back into the Engine's mutating operations.
type Observer interface {
	OnSync(SyncResult)
	OnDelete(DeleteResult)
	OnFlush(flushed int)
	OnReset(ResetResult)
}

// NopObserver implements Observer with no-ops. Embed it to implement only
// some of the hooks.
type NopObserver struct{}

func (NopObserver) OnSync(SyncResult)     {}
func (NopObserver) OnDelete(DeleteResult) {}
func (NopObserver) OnFlush(int)           {}
func (NopObserver) OnReset(ResetResult)   {}

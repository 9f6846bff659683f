// Package reconcile is the synchronization layer between the on-device store
// and the remote shipment service.
//
// Overview
//
// The Engine is the only writer of the shipments and outbox tables. It owns
// four operations:
//
//	SyncFromRemote       flush outbox, fetch, replace the table with the authoritative set
//	FlushPendingDeletes  confirm queued deletes against the remote service
//	DeleteShipment       delete locally, queue, try the remote delete once
//	ResetToSeed          restore the fixed seed dataset locally and (best effort) remotely
//
// Architecture
//
//	Presentation / CLI / daemon
//	     │  read API          │  operations
//	     ↓                    ↓
//	  store.DB  ←────────  Engine  ────────→  remote.Source
//	  (shipments,            │                 (GET /shipments,
//	   shipments_outbox)     │                  DELETE /shipments/{id})
//	                         ↓
//	                 Observer, Prometheus metrics
//
// The authoritative set is the fetched collection minus every order that
// still has a pending delete in the outbox. A local delete therefore survives
// any number of stale server snapshots until the remote service confirms it.
//
// Usage
//
//	database, err := store.Open(path)
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//	if err := database.InitSchema(); err != nil {
//	    return err
//	}
//
//	client, err := remote.NewClient(remote.Config{BaseURL: "http://10.0.2.2:3000"}, nil)
//	if err != nil {
//	    return err
//	}
//
//	engine := reconcile.New(database, client, reconcile.WithLocker(database.WriteLock()))
//	res, err := engine.SyncFromRemote(ctx)
//
// Error Handling
//
// Remote failures never surface as errors. A failed fetch turns the sync into
// a no-op (SyncResult.Offline); a failed delete leaves its outbox entry for
// the next pass. Only storage failures are returned, wrapped so that
// errors.Is(err, store.ErrStorage) holds.
//
// Concurrency
//
// All four operations are serialized by an in-process mutex and, when one is
// configured, a cross-process Locker. They run to completion once started:
// cancelling the caller's context does not abort them midway. Read methods do
// not take the lock; WAL mode keeps them consistent with the last committed
// snapshot.
package reconcile

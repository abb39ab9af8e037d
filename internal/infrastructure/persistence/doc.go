/*
Package persistence keeps the operational state across restarts.

A Mirror subscribes to the hub like any viewer, folds deltas into a local
snapshot and writes it to a BlobStore at most once per flush interval.
Blobs are sonic-encoded JSON compressed with zstd. On startup Load returns
the last saved state with transient fields (scan flags, interface list,
live stream count) cleared, ready for hub.Restore.

	store := persistence.NewRedisStore(persistence.RedisOptions{Addr: "localhost:6379"})
	mirror := persistence.NewMirror(h, store, persistence.MirrorOptions{Key: "nexus:state"})
	if st, ok, err := mirror.Load(ctx); err == nil && ok {
		h.Restore(st)
	}
	go mirror.Run(ctx)
*/
package persistence

// Package broadcast propagates session lifecycle notifications between tabs
// (or processes) sharing one origin.
//
// A Bus publishes typed Messages over a Transport. Two families of transport
// are interchangeable behind the same interface:
//
//   - direct channels: MemoryChannel (in-process) and RedisChannel (pub/sub)
//   - shared storage with change notifications: StorageTransport over a
//     SharedStorage such as MemoryStorage or RedisStorage
//
// The Bus prefers its primary transport and falls back to the secondary one
// when the primary is missing or cannot listen. With neither, cross-tab sync
// is disabled and every operation degrades to a no-op.
//
// Every message carries the sender's tab identifier and a Bus never delivers
// its own messages to its handlers.
//
// Basic usage:
//
//	channel := broadcast.NewMemoryChannel(16)
//	tabA := broadcast.NewBus(broadcast.WithPrimary(channel.Endpoint()))
//	tabB := broadcast.NewBus(broadcast.WithPrimary(channel.Endpoint()))
//
//	tabB.On(broadcast.TypeLogout, func(ctx context.Context, msg broadcast.Message) {
//		// sign out locally
//	})
//	_ = tabB.Start(ctx)
//
//	tabA.Broadcast(ctx, broadcast.TypeLogout, map[string]string{"reason": "manual_logout"})
package broadcast

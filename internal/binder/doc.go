/*
Package binder carries remote.Handle transactions between processes over
gRPC.

# Overview

Every process that publishes objects runs an Endpoint: a gRPC server with a
single generic method, /binder.Binder/Transact, a health service and a table
of published stubs. Every process that calls objects uses a Pool: one
client connection per peer address, health-gated on first use.

A transaction names its target by (object, instance, token). The instance is
a random id chosen when the endpoint starts, so a reference minted by an
earlier incarnation of a peer is answered with NotFound instead of reaching
whatever took its place. The token is the interface descriptor and must
match the published stub.

# Handles on the wire

Handles written into a Parcel travel as references {address, instance,
object, descriptor}. The receiver turns a reference to one of its own
objects back into the Local handle and everything else into a Proxy routed
through its Pool, so a client can pass its own listener to a broker and the
broker can call it back.

# Death

The Pool watches the connectivity state of each connection. The first
transition out of Ready marks the connection dead: every death recipient
linked through any proxy on it fires once, and the connection is evicted so
the next lookup dials fresh. A Local handle never dies and refuses death
recipients.

# Usage

	pool := binder.NewPool(binder.PoolConfig{DialTimeout: 3 * time.Second}, logger, metrics)
	ep := binder.NewEndpoint("10.0.0.5:46061", pool, logger, metrics)
	go ep.Serve(lis)

	h, err := pool.Proxy(ctx, binder.Ref{Address: "broker:46060", Object: remote.RegistryObjectID, Descriptor: remote.RegistryDescriptor})
	reply, err := h.Transact(ctx, remote.CodeResolve, remote.NewParcel().WriteInt32(remote.KeyServiceID, remote.WindowManagerServiceID))
*/
package binder

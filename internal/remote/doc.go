// Package remote defines the object model shared by every process that takes
// part in window-manager service discovery.
//
// A Handle is a reference to an object that may live in another process. It
// can carry transactions (Transact) and, when it is a proxy, report the death
// of the process behind it through DeathRecipient notifications. A Stub is the
// server side of an object: it decodes a Parcel and answers it.
//
// Components:
//   - Handle, DeathRecipient, Stub: the transport-neutral object contract
//   - Parcel: typed, strictly validated transaction payload
//   - Registry, BootstrapBroker, SessionBroker: the upstream collaborators
//     a locator walks to reach the window-manager domain service
//   - Descriptors, transaction codes and parcel keys of that protocol
//
// Parcel reads never guess: a missing key yields ErrMissingField and a key
// of the wrong kind yields ErrFieldType, so receivers can reject malformed
// messages before touching any state.
package remote

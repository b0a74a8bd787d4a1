/*
Package broker is the reference implementation of the remote side a
locator talks to, plus the typed proxies locators use to call it.

A Server publishes on one binder endpoint:

	registry          service id -> bootstrap broker
	bootstrap broker  user id -> session broker, screen-lite broker,
	                  recover listener registration
	session broker    per user: domain and domain-lite services

The bootstrap broker pushes ServiceRecovered after RestartSession and
ConnectionChanged after AddUser, SwitchUser and Disconnect. Pushes fan out
concurrently with a per-push timeout; a listener whose process dies is
dropped. A listener registered after its user connected is told so
asynchronously, never from inside the registration call.

Backend adapts a binder pool and endpoint to locator.Backend.
*/
package broker

/*
Package hostapi installs Go-backed host types into destination realms.

XMLHttpRequest follows the browser object closely enough for scripts and
proxies written against it: the usual attributes, methods and on* handler
slots, addEventListener/removeEventListener, and readyState transitions
UNSENT -> OPENED -> HEADERS_RECEIVED -> LOADING -> DONE.

Requests run on their own goroutine through a resty client. Completion is
posted back to the realm loop, so handlers always run there. A response
without a Content-Type header is sniffed from its body.

	r, _ := realm.New(realm.Config{
		Name: "destination",
		Init: func(r *realm.Realm) error {
			return hostapi.InstallXHR(r, hostapi.DefaultConfig())
		},
	}, logger)
*/
package hostapi

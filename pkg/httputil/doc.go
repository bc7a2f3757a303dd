// Package httputil holds the JSON request and response helpers shared by the
// middleware and the admin API.
//
// Errors are always written as {"error": "<message>"}:
//
//	httputil.WriteForbidden(w, "access denied")
//	httputil.WriteServiceUnavailable(w, "authorization unavailable")
//
// Requests are decoded strictly, rejecting unknown fields and oversized bodies:
//
//	var req CheckRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//
//	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
package httputil

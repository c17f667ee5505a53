// Package client is the consumer side of campusauth: a session manager for
// CLIs and services that call the campus API on behalf of a user.
//
// A [Manager] attaches the stored access token to every call. When the
// server answers 401 it refreshes once and replays once; if the refresh is
// rejected the local session is cleared and [ErrUnauthorized] is returned.
// Timeouts and transport errors are returned unchanged and never clear the
// session.
//
//	store, _ := client.DefaultFileStore()
//	m, err := client.New(client.Config{BaseURL: "http://127.0.0.1:8080"}, store)
//	id, err := m.Login(ctx, "ada@campus.edu", "secret")
//	resp, err := m.Get(ctx, "/api/courses")
package client

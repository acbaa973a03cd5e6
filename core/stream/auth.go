package stream

import "net/http"

// Authorizer decides whether the request may stream topic. It returns the
// caller's user ID on success, or one of ErrUnauthorized, ErrForbidden and
// ErrTopicNotFound.
type Authorizer interface {
	Authorize(r *http.Request, topic string) (string, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(r *http.Request, topic string) (string, error)

func (f AuthorizerFunc) Authorize(r *http.Request, topic string) (string, error) {
	return f(r, topic)
}

// HeaderAuthorizer trusts a user ID header set by an upstream gateway and
// allows every topic. Requests without the header are unauthorized.
func HeaderAuthorizer(header string) Authorizer {
	return AuthorizerFunc(func(r *http.Request, topic string) (string, error) {
		id := r.Header.Get(header)
		if id == "" {
			return "", ErrUnauthorized
		}
		return id, nil
	})
}

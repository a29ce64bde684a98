// Package weberr decorates errors with what the HTTP layer needs: the
// response to send and extra log fields.
package weberr

import "errors"

type Opt func(error) error

func Wrap(err error, opts ...Opt) error {
	for _, opt := range opts {
		err = opt(err)
	}
	return err
}

// WithResponse makes err answer with body and status.
func WithResponse(body interface{}, status int) Opt {
	return func(err error) error {
		return &responseError{error: err, body: body, status: status}
	}
}

// WithFields attaches log fields to err.
func WithFields(fields map[string]interface{}) Opt {
	return func(err error) error {
		return &fieldsError{error: err, fields: fields}
	}
}

type responseError struct {
	error
	body   interface{}
	status int
}

func (e *responseError) Response() (interface{}, int) { return e.body, e.status }

func (e *responseError) Unwrap() error { return e.error }

// Response returns the body and status of the outermost response in err's
// chain.
func Response(err error) (body interface{}, status int, ok bool) {
	var re *responseError
	if errors.As(err, &re) {
		body, status := re.Response()
		return body, status, true
	}
	return nil, 0, false
}

type fieldsError struct {
	error
	fields map[string]interface{}
}

func (e *fieldsError) Fields() map[string]interface{} { return e.fields }

func (e *fieldsError) Unwrap() error { return e.error }

// Fields merges the log fields found along err's chain. Outer fields win.
func Fields(err error) (map[string]interface{}, bool) {
	var out map[string]interface{}
	for err != nil {
		if fe, ok := err.(*fieldsError); ok {
			if out == nil {
				out = make(map[string]interface{})
			}
			for k, v := range fe.fields {
				if _, set := out[k]; !set {
					out[k] = v
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return out, out != nil
}

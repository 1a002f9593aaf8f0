//go:build !unix

package redirect

import "errors"

// Sockaddr is a socket address as passed to connect(2).
type Sockaddr = any

type systemConnector struct{}

func (systemConnector) Connect(int, Sockaddr) error {
	return errors.ErrUnsupported
}

// Package cloudsqlconn dials authenticated, mutually-authenticated TLS
// connections to a managed cloud relational database instance without the
// caller managing server certificates, static IP addresses, or network
// ACLs. Given only a logical instance identifier of the form
// "project:region:instance", a Dialer obtains the instance's current
// metadata and an ephemeral, short-lived client certificate from the
// admin API, keeps it fresh ahead of expiry, and returns a connected,
// handshaken net.Conn a database driver can use transparently.
package cloudsqlconn

// Package client is a Go client for the unit host management API.
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    return err
//	}
//	name, err := c.Install(ctx, "https://github.com/acme/sample-unit.git")
//
// Install, Update, Uninstall and SetEnv block until the server has finished
// the clone and build, so they use a client with lifecycle timeouts. Non-2xx
// responses come back as *errors.StructuredError carrying the server's code,
// message and details.
package client

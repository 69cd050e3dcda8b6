// Package manager implements the unit lifecycle: install, update, uninstall
// and startup reconciliation of the managed root directory.
//
// Every mutation keeps the registry triad (handler, directory, metadata)
// consistent with the filesystem. Failed operations run compensating
// actions before returning:
//
//   - Install builds into <root>/.tmp-<id>-<uuid> and only moves the result
//     into <root>/<id> once the build succeeded. A previous install is moved
//     to <root>/.bak-<id>-<uuid> during cutover and restored if the new build
//     fails to load.
//   - Update resets the working copy to the remote primary branch and
//     rebuilds in place. On failure it resets back to the previous revision.
//   - Uninstall removes the registration first and restores it if the
//     directory cannot be deleted.
//
// Operations on the same unit are serialized; different units proceed in
// parallel. Successful mutations run the registered change hooks and signal
// the restart.Restarter.
//
// Usage:
//
//	m, err := manager.New("/var/lib/unithost/units",
//	    manager.WithRegistry(reg),
//	    manager.WithChangeHook(dispatcher.Invalidate),
//	)
//	if _, err := m.Reconcile(ctx); err != nil {
//	    return err
//	}
//	id, err := m.Install(ctx, "https://github.com/acme/sample-unit.git")
package manager

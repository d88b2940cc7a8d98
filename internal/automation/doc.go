// Package automation manages conversation-authored automation definitions.
//
// Automations arrive as YAML configs from the conversation layer, get
// validated, and are appended to a YAML file the home backend watches.
// The package deliberately does not execute automations; triggering is
// the backend's job. Barnabee only validates, persists and announces.
//
// # Lifecycle
//
//	config map ──> Validate ──> append to automations.yaml ──> notify
//
// The store keeps an in-memory copy of the file, reloaded on every
// mutation, so lookups never touch the disk. A registered notifier is
// told about every accepted automation; the MQTT wiring forwards that
// as a core event so the backend reloads its automation set.
//
// # Usage
//
//	store, err := automation.NewFileStore(cfg.Automations.Path)
//	if err != nil {
//	    return err
//	}
//	store.SetNotifier(notifier)
//
//	id, err := store.Add(ctx, config)
package automation

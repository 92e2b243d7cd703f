package mqtt

// TopicPrefix is the root of every graynotify topic.
const TopicPrefix = "graynotify"

// Topics provides builders for graynotify MQTT topics.
type Topics struct{}

// SourcesAll carries the full source list, retained.
func (Topics) SourcesAll() string {
	return TopicPrefix + "/sources/all"
}

// SourcesEnabled carries the enabled source list, retained.
func (Topics) SourcesEnabled() string {
	return TopicPrefix + "/sources/enabled"
}

// SyncReport carries the report of the last reconciliation run.
func (Topics) SyncReport() string {
	return TopicPrefix + "/sources/sync"
}

// CommandSync requests a resync.
func (Topics) CommandSync() string {
	return TopicPrefix + "/command/sync"
}

// CommandToggle requests an enabled flag inversion.
func (Topics) CommandToggle() string {
	return TopicPrefix + "/command/toggle"
}

// CommandSetEnabled requests an explicit enabled flag.
func (Topics) CommandSetEnabled() string {
	return TopicPrefix + "/command/enabled"
}

// AllCommands matches every command topic.
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/#"
}

// SystemStatus carries the online/offline status and the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

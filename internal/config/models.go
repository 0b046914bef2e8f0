package config

// Camera holds the connection parameters for one managed camera.
// Credentials are used for both the PTZ command endpoint (digest auth)
// and the MJPEG sub-stream.
type Camera struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Host      string `json:"host" yaml:"host"`
	Username  string `json:"username" yaml:"username"`
	Password  string `json:"-" yaml:"password"`
	StreamURL string `json:"stream_url" yaml:"stream_url"`
}

// Config represents the application configuration
type Config struct {
	HTTPPort    int      `json:"http_port" yaml:"http_port"`
	ControlPort int      `json:"control_port" yaml:"control_port"`
	LogLevel    string   `json:"log_level" yaml:"log_level"`
	MaxStreams  int      `json:"max_streams" yaml:"max_streams"`
	SnapshotDir string   `json:"snapshot_dir" yaml:"snapshot_dir"`
	Cameras     []Camera `json:"cameras" yaml:"cameras"`
}

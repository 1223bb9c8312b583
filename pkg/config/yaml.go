package config

// Durations are written in their string form ("40ms") so saved files stay
// readable and load back through viper's duration hook.

func (s SerialConfig) MarshalYAML() (any, error) {
	return struct {
		Port        string `yaml:"port"`
		Baud        int    `yaml:"baud"`
		ReadTimeout string `yaml:"read_timeout"`
	}{s.Port, s.Baud, s.ReadTimeout.String()}, nil
}

func (c ControlConfig) MarshalYAML() (any, error) {
	return struct {
		Period        string `yaml:"period"`
		RetryAttempts int    `yaml:"retry_attempts"`
		RetryInterval string `yaml:"retry_interval"`
		ControlSource string `yaml:"control_source"`
	}{c.Period.String(), c.RetryAttempts, c.RetryInterval.String(), c.ControlSource}, nil
}

func (c CameraConfig) MarshalYAML() (any, error) {
	return struct {
		Enabled bool   `yaml:"enabled"`
		Device  string `yaml:"device"`
		Width   uint32 `yaml:"width"`
		Height  uint32 `yaml:"height"`
		Period  string `yaml:"period"`
		Timeout string `yaml:"timeout"`
	}{c.Enabled, c.Device, c.Width, c.Height, c.Period.String(), c.Timeout.String()}, nil
}

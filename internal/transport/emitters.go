package transport

import "cryo-dashboard/internal/protocol"

func (c *Client) RequestTemperatures() error { return c.emit(protocol.KindGetTemperatures, nil) }
func (c *Client) RequestDCField() error      { return c.emit(protocol.KindGetDCField, nil) }
func (c *Client) RequestACField() error      { return c.emit(protocol.KindGetACField, nil) }
func (c *Client) RequestPointsTaken() error  { return c.emit(protocol.KindGetPointsTaken, nil) }
func (c *Client) RequestPointsTotal() error  { return c.emit(protocol.KindGetPointsTotal, nil) }
func (c *Client) RequestClientCount() error  { return c.emit(protocol.KindGetClientCount, nil) }
func (c *Client) RequestRMS() error          { return c.emit(protocol.KindGetRMS, nil) }
func (c *Client) RequestMagnetTrace() error  { return c.emit(protocol.KindGetMagnetTrace, nil) }
func (c *Client) RequestTemperatureTrace() error {
	return c.emit(protocol.KindGetTemperatureTrace, nil)
}
func (c *Client) RequestPressureTrace() error { return c.emit(protocol.KindGetPressureTrace, nil) }
func (c *Client) RequestLatestConfig() error  { return c.emit(protocol.KindGetLatestConfig, nil) }
func (c *Client) BeginCooldown() error        { return c.emit(protocol.KindBeginCooldown, nil) }
func (c *Client) RequestCryoStatus() error    { return c.emit(protocol.KindGetCryoStatus, nil) }

// SaveConfig sends the whole configuration. The server overwrites its copy and
// restarts the current run.
func (c *Client) SaveConfig(cfg protocol.ExperimentConfig) error {
	return c.emit(protocol.KindSetConfig, cfg)
}

// RequestExperimentList asks for a 1-indexed page of the experiment list.
func (c *Client) RequestExperimentList(page int) error {
	if page < 1 {
		page = 1
	}
	return c.emit(protocol.KindGetExperimentList, protocol.ExperimentListRequest{Page: page})
}

// SendIdentity answers the server's identity request.
func (c *Client) SendIdentity() error {
	return c.emit(protocol.KindIdentity, c.opts.ClientID)
}

package types

// Audio configuration supplied on topic "config/audio".

type AudioConfig struct {
	TX *StreamConfig `json:"tx,omitempty"`
	RX *StreamConfig `json:"rx,omitempty"`
	// Enable lists directions ("tx", "rx") to start once configured.
	Enable []string `json:"enable,omitempty"`
	// StatusIntervalMS republishes the retained status while streaming.
	// 0 disables the periodic refresh.
	StatusIntervalMS int `json:"status_interval_ms,omitempty"`
}

// StreamConfig is the format and ring layout of one direction.
type StreamConfig struct {
	Channels  uint32 `json:"channels"`
	Bits      uint32 `json:"bits"`
	Rate      uint32 `json:"rate"`
	Blocks    uint32 `json:"blocks"`     // power of two >= 2
	BlockSize uint32 `json:"block_size"` // samples per block
}

// ---- Control payloads (audio/control/<verb>) ----

type AudioIfaceReq struct {
	Iface string `json:"iface"` // "tx", "rx" or "both"
}

// ---- Published payloads ----

// AudioStatus is retained on audio/status.
type AudioStatus struct {
	TxActive bool   `json:"tx_active"`
	RxActive bool   `json:"rx_active"`
	TxState  string `json:"tx_state"`
	RxState  string `json:"rx_state"`
	TxCount  uint32 `json:"tx_count"`
	RxCount  uint32 `json:"rx_count"`
	TS       int64  `json:"ts_ms"`
}

// AudioEvent is published on audio/event for every coalesced notification.
type AudioEvent struct {
	Mask    uint32 `json:"mask"` // 1 = tx data, 2 = rx data
	TxCount uint32 `json:"tx_count"`
	RxCount uint32 `json:"rx_count"`
	TS      int64  `json:"ts_ms"`
}

// AudioStats answers audio/control/stats.
type AudioStats struct {
	TX            DirStats `json:"tx"`
	RX            DirStats `json:"rx"`
	Notifications uint32   `json:"notifications"`
}

type DirStats struct {
	Blocks    uint32 `json:"blocks"`
	Overruns  uint32 `json:"overruns"`
	Underruns uint32 `json:"underruns"`
	Faults    uint32 `json:"faults"`
}

// AudioFault is published on audio/fault when the driver reports one.
type AudioFault struct {
	Iface string `json:"iface"`
	Kind  string `json:"kind"`
	State string `json:"state"`
	TS    int64  `json:"ts_ms"`
}

package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

// Host loopback: stereo 16-bit at 48 kHz, 10.7 ms blocks.
const cfgHost = `{
  "audio": {
    "tx": {"channels": 2, "bits": 16, "rate": 48000, "blocks": 4, "block_size": 1024},
    "rx": {"channels": 2, "bits": 16, "rate": 48000, "blocks": 4, "block_size": 1024},
    "enable": ["tx", "rx"],
    "status_interval_ms": 1000
  }
}`

// Pico with a WM8960 codec board: 16 kHz mono speech path.
const cfgPico = `{
  "audio": {
    "tx": {"channels": 1, "bits": 16, "rate": 16000, "blocks": 4, "block_size": 256},
    "rx": {"channels": 1, "bits": 16, "rate": 16000, "blocks": 4, "block_size": 256},
    "enable": ["rx"],
    "status_interval_ms": 2000
  }
}`

var embeddedConfigs = map[string][]byte{
	"host": []byte(cfgHost),
	"pico": []byte(cfgPico),
}

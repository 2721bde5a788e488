package config

// defaultYAML is the configuration used when no file is given.
const defaultYAML = `
radio:
  id: rf0
  chip: cc1101
  frequency_mhz: 868.95
  spi:
    port: /dev/spidev0.0
    cs_pin: GPIO8
    clock_hz: 4000000
  reset_pin: ""
  data_pin: GPIO25
  sync_pin: ""

pipeline:
  queue_size: 256
  poll_interval: 4ms
  frame_gap: 20ms
  max_frame_len: 512
  stats_interval: 1s

sink:
  type: stdout
  format: rtlwmbus
  dedup_window: 0s

heartbeat:
  interval: 30s

log:
  level: info
  console: true
  file_path: ""
  max_size: 10
  max_backups: 3
  max_age: 7
`

// Package influxdb records device history in InfluxDB v2.
//
// Three measurements are written, all tagged with the device's physical
// address:
//   - knx_feedback: feedback item values, tagged by name and kind
//   - knx_telegram: group telegrams seen on the bus
//   - knx_device_stats: frame counters
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, "1.1.250")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//	client.WriteFeedback(dev.Feedback(), time.Now())
package influxdb

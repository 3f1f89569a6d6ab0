// Package health publishes periodic, retained service health messages for
// the Bluerial bridges.
//
// Each bridge owns one Reporter. The reporter publishes "starting" when
// asked, then its checked status every interval, then "stopping" on Stop:
//
//	{"service":"ble","version":"1.0.0","status":"healthy","uptime_seconds":42,"devices":3,"timestamp":"..."}
//
// Topic: bluerial/health/<service> (QoS 1, retained).
package health

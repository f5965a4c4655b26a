// Package service drives the containers under concurrent load and turns
// the outcome into a report.Report.
//
// It is decoupled from transports and storage: the CLI persists and
// publishes what the Runner returns.
package service

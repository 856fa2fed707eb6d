package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ CommandClient             = (*Client)(nil)
	_ HeaderSource              = (*Client)(nil)
	_ LastRequestTelemetryCache = (*MemoryLastRequestTelemetryCache)(nil)
	_ CommandResolver           = (*ControllerCommandResolver)(nil)
	_ RetryBackoffScheduler     = ExponentialBackoffScheduler{}
	_ Controller                = ControllerFunc{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)

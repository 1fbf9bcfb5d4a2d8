// Copyright 2025 The go-lsnp Authors
// This file is part of the go-lsnp library.
//
// The go-lsnp library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-lsnp library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-lsnp library. If not, see <http://www.gnu.org/licenses/>.

// Contains the meters used by the datagram layer.

package transport

import "github.com/rcrowley/go-metrics"

const (
	// MetricsInboundTraffic is the registry name for ingress byte metering.
	MetricsInboundTraffic = "lsnp/InboundTraffic"
	// MetricsOutboundTraffic is the registry name for egress byte metering.
	MetricsOutboundTraffic = "lsnp/OutboundTraffic"
	// MetricsSimulatedDrops is the registry name for loss-simulator drops.
	MetricsSimulatedDrops = "lsnp/SimulatedDrops"
)

var (
	ingressTrafficMeter = metrics.NewRegisteredMeter(MetricsInboundTraffic, nil)
	egressTrafficMeter  = metrics.NewRegisteredMeter(MetricsOutboundTraffic, nil)
	dropMeter           = metrics.NewRegisteredMeter(MetricsSimulatedDrops, nil)
)

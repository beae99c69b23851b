// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import "strings"

// MMI status codes (RFC 8)
const (
	mmiFound    = "200"
	mmiNotFound = "404"
)

// MMIService is the service discovery query.
const MMIService ServiceName = InternalServicePrefix + "service"

// serviceInternal answers an mmi.* request directly. mmi.service asks about
// the service named by the last body frame; any other mmi.<name> asks about
// <name>. It never creates a service as a side effect.
func (b *Broker) serviceInternal(service ServiceName, envelope, body [][]byte) {
	var target ServiceName
	if service == MMIService {
		if len(body) > 0 {
			target = ServiceName(body[len(body)-1])
		}
	} else {
		target = ServiceName(strings.TrimPrefix(string(service), InternalServicePrefix))
	}

	code := mmiNotFound
	if svc, ok := b.services[target]; ok && svc.workers > 0 {
		code = mmiFound
	}

	b.log.Debug().Str("service", service.String()).Str("target", target.String()).Str("code", code).Msg("internal service request")
	b.send(encodeClient(envelope[0], service, []byte(code)))
}

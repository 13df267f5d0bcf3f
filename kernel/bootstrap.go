//
// Copyright 2024 The ViperOS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package kernel

import (
	"runtime"

	"github.com/splanck/viperos/domain"
)

// AcceptBootstrap implements the REDESIGN FLAGS "Bootstrap channel at
// handle 0" item: a single typed entry point distinct from ordinary
// channel_recv, so a newly spawned process's well-known slot 0 is never
// confused with a regular channel handle obtained later. It loops up to
// maxAttempts times per spec.md §4.7's pseudocode, yielding on WouldBlock,
// and tolerates an absent bootstrap message as legacy bring-up mode.
func AcceptBootstrap(t domain.Task, maxAttempts int) (domain.Message, bool, error) {
	recvObj, err := t.Caps().Lookup(domain.BootstrapHandle, domain.KindChannel, domain.RightRead)
	if err != nil {
		return domain.Message{}, false, err
	}
	recv, ok := recvObj.(domain.Endpoint)
	if !ok {
		return domain.Message{}, false, domain.WrongType
	}

	for i := 0; i < maxAttempts; i++ {
		msg, err := recv.Recv(domain.MaxPayload, domain.MaxHandlesPerMsg)
		switch err {
		case nil:
			_ = recv.Close()
			_ = t.Caps().Revoke(domain.BootstrapHandle)
			return msg, true, nil
		case domain.WouldBlock:
			runtime.Gosched()
			continue
		case domain.ChannelClosed:
			return domain.Message{}, false, nil
		default:
			return domain.Message{}, false, err
		}
	}
	return domain.Message{}, false, nil
}

// Copyright (c) 2024 Doc.ai and/or its affiliates.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package netdevice_test

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/networkservicemesh/sdk-netdevice/pkg/host"
	"github.com/networkservicemesh/sdk-netdevice/pkg/netdevice"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession/sessiontest"
)

const (
	pfBusID    = "04"
	pfDevfunID = "00.0"
	pfAddr     = "04:00.0"
	pfPath     = "/sys/bus/pci/devices/0000:04:00.0"
	pfIface    = "eth2"
	pfMAC      = "3c:fd:fe:9e:5c:40"

	ipv4Output = `6: eth2: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc mq state UP group default qlen 1000
    inet 192.168.1.10/24 brd 192.168.1.255 scope global eth2
       valid_lft forever preferred_lft forever`
	ipv6Output = `6: eth2: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc mq state UP group default qlen 1000
    inet6 fe80::3efd:feff:fe9e:5c40/64 scope link
       valid_lft forever preferred_lft forever`
)

var (
	vfPool  = []string{"04:10.0", "04:10.2", "04:10.4", "04:10.6"}
	drivers = []string{"ixgbe", "ixgbevf", "vfio-pci", "pci-stub"}
)

// sysfs emulates the sysfs of a host with a single 82599 PF and up to len(vfPool) VFs
type sysfs struct {
	*sessiontest.Transport
	drivers map[string]string
	numVFs  int
}

func newSysfs() *sysfs {
	s := &sysfs{
		Transport: sessiontest.New(),
		drivers:   map[string]string{pfAddr: "ixgbe"},
	}

	s.device(pfAddr, "8086", "10fb")
	for _, vf := range vfPool {
		s.device(vf, "8086", "10ed")
	}

	s.Handle("ls --color=never "+pfPath+"/net", func() (string, error) {
		if s.drivers[pfAddr] == "" {
			return "", errors.New("ls: cannot access: No such file or directory")
		}
		return pfIface, nil
	})
	s.Set("cat "+pfPath+"/net/eth2/address", pfMAC)
	s.Set("ip -family inet address show dev eth2", ipv4Output)
	s.Set("ip -family inet6 address show dev eth2", ipv6Output)

	s.Handle("cat "+pfPath+"/sriov_numvfs", func() (string, error) {
		return strconv.Itoa(s.numVFs), nil
	})
	for n := 0; n <= len(vfPool); n++ {
		s.Handle(fmt.Sprintf("echo %d > %s/sriov_numvfs", n, pfPath), s.setNumVFs(n))
		s.Handle(fmt.Sprintf("echo %d > %s/max_vfs", n, pfPath), s.setNumVFs(n))
	}
	s.Handle("ls -d "+pfPath+"/virtfn*", func() (string, error) {
		if s.numVFs == 0 {
			return "", errors.New("ls: cannot access: No such file or directory")
		}
		var links []string
		for i := 0; i < s.numVFs; i++ {
			links = append(links, fmt.Sprintf("%s/virtfn%d", pfPath, i))
		}
		return strings.Join(links, "  "), nil
	})
	for i, vf := range vfPool {
		s.Set(fmt.Sprintf("cat %s/virtfn%d/uevent", pfPath, i), "DRIVER=ixgbevf\nPCI_SLOT_NAME=0000:"+vf)
	}

	return s
}

func (s *sysfs) device(pciAddr, vendor, device string) {
	devicePath := "/sys/bus/pci/devices/0000:" + pciAddr

	s.Set("cat "+devicePath+"/vendor", "0x"+vendor)
	s.Set("cat "+devicePath+"/device", "0x"+device)
	s.Handle("cat "+devicePath+"/uevent", func() (string, error) {
		uevent := "PCI_CLASS=20000\nPCI_SLOT_NAME=0000:" + pciAddr
		if driver := s.drivers[pciAddr]; driver != "" {
			uevent = "DRIVER=" + driver + "\n" + uevent
		}
		return uevent, nil
	})
	s.Handle("echo 0000:"+pciAddr+" > "+devicePath+"/driver/unbind", func() (string, error) {
		if s.drivers[pciAddr] == "" {
			return "", errors.New("No such file or directory")
		}
		delete(s.drivers, pciAddr)
		return "", nil
	})

	for _, driver := range drivers {
		s.Set(fmt.Sprintf("echo %s %s > /sys/bus/pci/drivers/%s/new_id", vendor, device, driver), "")
		s.Handle("echo 0000:"+pciAddr+" > /sys/bus/pci/drivers/"+driver+"/bind", func() (string, error) {
			if s.drivers[pciAddr] != "" {
				return "", errors.New("Device or resource busy")
			}
			s.drivers[pciAddr] = driver
			return "", nil
		})
	}
}

func (s *sysfs) setNumVFs(n int) sessiontest.Handler {
	return func() (string, error) {
		for i, vf := range vfPool {
			if i < n {
				s.drivers[vf] = "ixgbevf"
			} else {
				delete(s.drivers, vf)
			}
		}
		s.numVFs = n
		return "", nil
	}
}

func newHost(osType string, transport hostsession.Transport) *host.Host {
	return host.New(hostsession.NewSession("dut", osType, transport))
}

func newPF(t *testing.T, s *sysfs, opts ...netdevice.Option) *netdevice.Device {
	opts = append([]netdevice.Option{netdevice.WithSettleDelay(0)}, opts...)

	d, err := netdevice.New(context.Background(), newHost(hostsession.OSLinux, s), pfBusID, pfDevfunID, opts...)
	require.NoError(t, err)

	s.Reset()
	return d
}

func indexOf(commands []string, command string) int {
	for i, c := range commands {
		if c == command {
			return i
		}
	}
	return -1
}

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

package provision_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/networkservicemesh/sdk-netdevice/pkg/config"
	"github.com/networkservicemesh/sdk-netdevice/pkg/provision"
	"github.com/networkservicemesh/sdk-netdevice/pkg/tools/hostsession"
)

const (
	pfAddr  = "04:00.0"
	vf1Addr = "04:10.0"
	vf2Addr = "04:10.2"
	pfPath  = "/sys/bus/pci/devices/0000:04:00.0"
)

type hostMock struct {
	mock.Mock
}

func (m *hostMock) Execute(_ context.Context, command, _ string, _ time.Duration) (string, error) {
	args := m.Called(command)
	return args.String(0), args.Error(1)
}

func (m *hostMock) OSType() string {
	return hostsession.OSLinux
}

func (m *hostMock) PCIDeviceDriver(_ context.Context, busID, devfunID string) (string, error) {
	args := m.Called(busID + ":" + devfunID)
	return args.String(0), args.Error(1)
}

func (m *hostMock) NUMANode(_ context.Context, busID, devfunID string) (int, error) {
	args := m.Called(busID + ":" + devfunID)
	return args.Int(0), args.Error(1)
}

func (m *hostMock) PCIDeviceID(_ context.Context, busID, devfunID string) (string, error) {
	args := m.Called(busID + ":" + devfunID)
	return args.String(0), args.Error(1)
}

func newConfig() *config.Config {
	return &config.Config{
		OS:          hostsession.OSLinux,
		SettleDelay: config.Duration(time.Millisecond),
		PhysicalFunctions: map[string]*config.PhysicalFunction{
			"0000:" + pfAddr: {
				PFDriver: "ixgbe",
				VFDriver: "vfio-pci",
				VFCount:  2,
			},
		},
	}
}

func newHostMock() *hostMock {
	m := &hostMock{}

	m.On("PCIDeviceID", pfAddr).Return("8086:10fb", nil)
	m.On("PCIDeviceDriver", pfAddr).Return("ixgbe", nil)
	m.On("Execute", "ls --color=never "+pfPath+"/net").Return("eth2", nil)

	m.On("Execute", "cat "+pfPath+"/sriov_numvfs").Return("0", nil).Once()
	m.On("Execute", "echo 2 > "+pfPath+"/sriov_numvfs").Return("", nil).Once()
	m.On("Execute", "cat "+pfPath+"/sriov_numvfs").Return("2", nil).Once()
	m.On("Execute", "ls -d "+pfPath+"/virtfn*").Return(pfPath+"/virtfn0 "+pfPath+"/virtfn1", nil)
	m.On("Execute", "cat "+pfPath+"/virtfn0/uevent").Return("DRIVER=ixgbevf\nPCI_SLOT_NAME=0000:"+vf1Addr, nil)
	m.On("Execute", "cat "+pfPath+"/virtfn1/uevent").Return("DRIVER=ixgbevf\nPCI_SLOT_NAME=0000:"+vf2Addr, nil)

	m.On("Execute", "echo 8086 10ed > /sys/bus/pci/drivers/vfio-pci/new_id").Return("", nil)
	for _, vf := range []string{vf1Addr, vf2Addr} {
		m.On("PCIDeviceID", vf).Return("8086:10ed", nil)
		m.On("PCIDeviceDriver", vf).Return("ixgbevf", nil)
		m.On("Execute", "echo 0000:"+vf+" > /sys/bus/pci/devices/0000:"+vf+"/driver/unbind").Return("", nil).Once()
		m.On("Execute", "echo 0000:"+vf+" > /sys/bus/pci/drivers/vfio-pci/bind").Return("", nil).Once()
	}

	return m
}

func TestApply(t *testing.T) {
	m := newHostMock()

	plan, err := provision.Apply(context.Background(), m, newConfig())
	require.NoError(t, err)

	require.Len(t, plan.Devices(), 1)
	pf, ok := plan.Device("0000:" + pfAddr)
	require.True(t, ok)
	require.Equal(t, []string{vf1Addr, vf2Addr}, pf.TrackedVFs())
	require.Equal(t, "ixgbevf", pf.DefaultVFDriver())

	_, ok = plan.Device("05:00.0")
	require.False(t, ok)

	m.AssertExpectations(t)
}

func TestPlan_Teardown(t *testing.T) {
	m := newHostMock()

	plan, err := provision.Apply(context.Background(), m, newConfig())
	require.NoError(t, err)

	m.On("Execute", "echo 0 > "+pfPath+"/sriov_numvfs").Return("", nil).Once()

	require.NoError(t, plan.Teardown(context.Background()))
	require.Empty(t, plan.Devices()[0].TrackedVFs())

	m.AssertExpectations(t)
}

func TestApply_DriverTable(t *testing.T) {
	m := &hostMock{}
	m.On("PCIDeviceID", pfAddr).Return("8086:10fb", nil)
	m.On("PCIDeviceDriver", pfAddr).Return("", nil)

	cfg := &config.Config{
		OS:          hostsession.OSLinux,
		DriverTable: "testdata/drivers.yml",
		PhysicalFunctions: map[string]*config.PhysicalFunction{
			pfAddr: {},
		},
	}

	plan, err := provision.Apply(context.Background(), m, cfg)
	require.NoError(t, err)

	pf, ok := plan.Device(pfAddr)
	require.True(t, ok)
	require.Equal(t, "ixgbe-custom", pf.DefaultDriver())

	cfg.DriverTable = "testdata/not-exists.yml"
	_, err = provision.Apply(context.Background(), m, cfg)
	require.Error(t, err)
}

func TestApply_NoPFDriver(t *testing.T) {
	m := &hostMock{}
	m.On("PCIDeviceID", pfAddr).Return("8086:10fb", nil)
	m.On("PCIDeviceDriver", pfAddr).Return("", nil)

	cfg := &config.Config{
		OS: hostsession.OSLinux,
		PhysicalFunctions: map[string]*config.PhysicalFunction{
			pfAddr: {VFCount: 2},
		},
	}

	_, err := provision.Apply(context.Background(), m, cfg)
	require.Error(t, err)
}

type sessionMock struct {
	mock.Mock
}

func (m *sessionMock) Execute(_ context.Context, command, expected string, timeout time.Duration) (string, error) {
	args := m.Called(command, expected, timeout)
	return args.String(0), args.Error(1)
}

func (m *sessionMock) OSType() string {
	return hostsession.OSLinux
}

func (m *sessionMock) HostName() string {
	return "dut"
}

func TestNewHost(t *testing.T) {
	cfg := newConfig()
	cfg.Prompt = "dut# "
	cfg.CommandTimeout = config.Duration(3 * time.Second)

	session := &sessionMock{}
	session.On("Execute", "cat "+pfPath+"/numa_node", `dut# `, 3*time.Second).Return("1", nil)

	numa, err := provision.NewHost(session, cfg).NUMANode(context.Background(), "04", "00.0")
	require.NoError(t, err)
	require.Equal(t, 1, numa)
	session.AssertExpectations(t)
}

func TestNewHost_Defaults(t *testing.T) {
	session := &sessionMock{}
	session.On("Execute", "cat "+pfPath+"/numa_node", hostsession.RootPrompt, 15*time.Second).Return("0", nil)

	numa, err := provision.NewHost(session, newConfig()).NUMANode(context.Background(), "04", "00.0")
	require.NoError(t, err)
	require.Equal(t, 0, numa)
	session.AssertExpectations(t)
}

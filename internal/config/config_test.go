package config_test

import (
	"testing"

	"github.com/apbridge/apbridged/internal/config"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiresSerialDevice(t *testing.T) {
	c := config.Default()
	c.MDNSDiscovery = true
	err := c.Validate()
	require.ErrorContains(t, err, "serial-device")
}

func TestValidateRequiresADiscoveryMode(t *testing.T) {
	c := config.Default()
	c.SerialDevice = "/dev/ttyACM0"
	err := c.Validate()
	require.ErrorContains(t, err, "static-nodes or mdns-discovery")
}

func TestValidateOK(t *testing.T) {
	c := config.Default()
	c.SerialDevice = "/dev/ttyACM0"
	c.MDNSDiscovery = true
	require.NoError(t, c.Validate())
}

func TestStaticNodeListParsesAndTrims(t *testing.T) {
	c := config.Default()
	c.StaticNodes = " fe80::1 , fe80::2,fe80::3 "
	require.Equal(t, []string{"fe80::1", "fe80::2", "fe80::3"}, c.StaticNodeList())
}

func TestStaticNodeListEmpty(t *testing.T) {
	c := config.Default()
	require.Nil(t, c.StaticNodeList())
}

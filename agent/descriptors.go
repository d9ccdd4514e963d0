package agent

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/Rival420/donwatcher/errors"
	"github.com/Rival420/donwatcher/protocol"
)

// CollectIdentity gathers the check-in payload from the local host: machine
// name, MACs, addresses, platform facts, and the descriptor bag. The MAC
// list is ordered so the first entry is the primary interface the server
// derives the identity from.
func CollectIdentity() (*protocol.CheckInRequest, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.Wrap(err, "resolve hostname")
	}

	macs, addrs, err := networkFacts()
	if err != nil {
		return nil, err
	}

	req := &protocol.CheckInRequest{
		MachineName: hostname,
		MACs:        macs,
		Addresses:   addrs,
		Descriptors: map[string]string{},
	}

	if info, err := host.Info(); err == nil {
		req.OS = info.OS
		req.Platform = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		req.Descriptors["kernel"] = info.KernelVersion
		req.Descriptors["arch"] = info.KernelArch
		req.Descriptors["uptime_seconds"] = fmt.Sprintf("%d", info.Uptime)
		req.Descriptors["boot_time"] = fmt.Sprintf("%d", info.BootTime)
	}

	if u, err := user.Current(); err == nil {
		req.Username = u.Username
		// DOMAIN\user on Windows
		if i := strings.IndexByte(u.Username, '\\'); i > 0 {
			req.Domain = u.Username[:i]
			req.Username = u.Username[i+1:]
		}
	}

	return req, nil
}

// networkFacts returns the MACs and non-loopback addresses of up interfaces.
func networkFacts() ([]string, []string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, errors.Wrap(err, "list network interfaces")
	}

	var macs, addrs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.HardwareAddr.String() == "" {
			continue
		}
		macs = append(macs, iface.HardwareAddr.String())

		ifAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifAddrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				addrs = append(addrs, ip4.String())
			}
		}
	}

	if len(macs) == 0 {
		return nil, nil, errors.Wrap(errors.ErrValidation, "no usable network interface found")
	}
	if len(addrs) == 0 {
		return nil, nil, errors.Wrap(errors.ErrValidation, "no non-loopback address found")
	}
	return macs, addrs, nil
}

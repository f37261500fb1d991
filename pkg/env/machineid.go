package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves the unique ID identifying the machine.
// The hostname is used where no machine ID is available (e.g. containers).
func MachineID() string {
	id, err := machineid.ID()
	if err == nil {
		return id
	}
	glog.Warningf("machine ID unavailable: %v", err)
	host, err := os.Hostname()
	if err != nil {
		panic(err)
	}
	return host
}

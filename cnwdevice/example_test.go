package cnwdevice_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice"
	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice/clientstore"
)

type loginPage struct{}

func (loginPage) RedirectToLogin(reason cnwdevice.TerminationReason) {
	fmt.Printf("Redirect to login: %s\n", reason)
}

func ExampleNewController() {
	registry := cnwdevice.NewRegistryClient("https://app.example.com/api", cnwdevice.WithAPIKey("your-api-key"))
	ctrl, err := cnwdevice.NewController(registry, cnwdevice.Env{
		Durable:   clientstore.NewMemoryStore(),
		Tab:       clientstore.NewMemoryStore(),
		Navigator: loginPage{},
		Probes:    cnwdevice.HostProbes("my-app/1.0 (Linux)"),
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	err = ctrl.Start(context.Background(), cnwdevice.User{ID: "42"})
	switch {
	case errors.Is(err, cnwdevice.ErrDeviceLimitReached):
		fmt.Printf("Blocked: %v\n", err)
		return
	case err != nil:
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer ctrl.Logout(context.Background())
	<-ctrl.Done()
}

func ExampleComputeFingerprint() {
	signals := cnwdevice.CollectSignals(context.Background(), cnwdevice.Probes{})
	fmt.Println(signals.Canvas)
	fmt.Println(cnwdevice.ComputeFingerprint(signals))
	// Output:
	// unknown
	// dev_wmrzta_u3pw11_dghkya
}

func ExampleCheckAccess() {
	limit := cnwdevice.AccessLimit{CanAccess: false, ActiveDevices: 1, MaxDevices: 1}
	if err := cnwdevice.CheckAccess(limit); err != nil {
		fmt.Println(err)
	}
	// Output: device limit reached: 1 of 1 devices active
}

func ExampleParseUserAgent() {
	info := cnwdevice.ParseUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	fmt.Println(info.Name(), info.Type)
	// Output: Safari on iOS mobile
}

package config

import (
	"errors"
	"fmt"
	"time"
)

// DispatcherConf is the process-wide configuration snapshot. It is built once at
// startup by LoadDispatcherConf and only read afterwards.
type DispatcherConf struct {
	ServiceName    string
	BaselineDomain string
	ServiceContext string
	SizeThreshold  int64
	Owner          string

	Region         string
	ImageID        string
	InstanceType   string
	KeyName        string
	SecurityGroups []string
	IAMProfile     string

	InstancePollInterval time.Duration
	InstanceTimeout      time.Duration
	HealthPollInterval   time.Duration
	HealthTimeout        time.Duration
	DeliveryAttempts     int
	DeliveryInterval     time.Duration
	TerminationGrace     time.Duration
}

func seconds(key string, def int) time.Duration {
	return time.Duration(GetInt(key, def)) * time.Second
}

// LoadDispatcherConf reads the dispatcher settings from the parsed configuration.
func LoadDispatcherConf() (DispatcherConf, error) {
	c := DispatcherConf{
		ServiceName:    GetString(SERVICE_NAME, "digest-service"),
		BaselineDomain: GetString(BASELINE_DOMAIN, ""),
		ServiceContext: GetString(SERVICE_CONTEXT, "/digest-service-no-limit"),
		SizeThreshold:  GetInt64(SIZE_THRESHOLD, 0),
		Owner:          GetString(OWNER_TAG, ""),

		Region:         GetString(AWS_REGION, "us-east-1"),
		ImageID:        GetString(INSTANCE_IMAGE_ID, ""),
		InstanceType:   GetString(INSTANCE_TYPE, "t2.micro"),
		KeyName:        GetString(INSTANCE_KEY_NAME, ""),
		SecurityGroups: GetStringSlice(INSTANCE_SECURITY_GROUPS, nil),
		IAMProfile:     GetString(INSTANCE_IAM_PROFILE, ""),

		InstancePollInterval: seconds(INSTANCE_POLL_INTERVAL, 15),
		InstanceTimeout:      seconds(INSTANCE_POLL_TIMEOUT, 600),
		HealthPollInterval:   seconds(HEALTH_POLL_INTERVAL, 15),
		HealthTimeout:        seconds(HEALTH_POLL_TIMEOUT, 300),
		DeliveryAttempts:     GetInt(DELIVERY_ATTEMPTS, 3),
		DeliveryInterval:     seconds(DELIVERY_INTERVAL, 5),
		TerminationGrace:     seconds(TERMINATION_GRACE, 15*60),
	}
	return c, c.Validate()
}

func (c DispatcherConf) Validate() error {
	if c.SizeThreshold <= 0 {
		return fmt.Errorf("invalid %s: %d", SIZE_THRESHOLD, c.SizeThreshold)
	}
	if c.BaselineDomain == "" {
		return errors.New("baseline service domain not configured")
	}
	if c.ImageID == "" || c.InstanceType == "" {
		return errors.New("instance image and type must be configured")
	}
	if c.DeliveryAttempts < 1 {
		return fmt.Errorf("invalid %s: %d", DELIVERY_ATTEMPTS, c.DeliveryAttempts)
	}
	return nil
}

// ServiceContextUrl returns the root URL of the digest service hosted at serverAddress.
func (c DispatcherConf) ServiceContextUrl(serverAddress string) string {
	return "http://" + serverAddress + c.ServiceContext
}

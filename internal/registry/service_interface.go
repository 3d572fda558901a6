package registry

// Service is the lifecycle contract every long-running agent component implements
type Service interface {
	Start() error
	Stop() error
}

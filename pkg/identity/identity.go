package identity

import (
	"os"

	"github.com/google/uuid"

	"github.com/fieldtrack/agent/pkg/file"
)

// Identity holds the agent's unique identifier and other metadata.
type Identity struct {
	ID    string `json:"agent_id,omitempty"`
	Name  string `json:"agent_name,omitempty"`
	Fleet string `json:"fleet_id,omitempty"`
}

// AgentInfoInterface defines methods for managing the agent identity.
type AgentInfoInterface interface {
	LoadAgentInfo() error
	EnsureAgentID() (string, error)
	GetAgentID() string
	GetAgentIdentity() *Identity
}

// AgentInfo manages the agent identity and its associated file operations.
type AgentInfo struct {
	AgentInfoFile string
	Identity      Identity
	fileOps       file.FileOperations
}

// NewAgentInfo initializes a new AgentInfo instance.
func NewAgentInfo(filePath string, fileOps file.FileOperations) AgentInfoInterface {
	return &AgentInfo{
		AgentInfoFile: filePath,
		fileOps:       fileOps,
		Identity:      Identity{},
	}
}

// LoadAgentInfo reads the agent information from the file and populates the Identity field.
func (d *AgentInfo) LoadAgentInfo() error {
	err := d.fileOps.ReadJsonFile(d.AgentInfoFile, &d.Identity)
	if err != nil {
		if os.IsNotExist(err) {
			// File does not exist, initialize with default empty values
			d.Identity = Identity{}
			return nil
		}
		return err
	}

	return nil
}

// EnsureAgentID returns the persisted agent ID, minting and saving a new
// one on first run.
func (d *AgentInfo) EnsureAgentID() (string, error) {
	if d.Identity.ID != "" {
		return d.Identity.ID, nil
	}

	d.Identity.ID = uuid.New().String()
	if err := d.fileOps.WriteJsonFile(d.AgentInfoFile, d.Identity); err != nil {
		return "", err
	}
	return d.Identity.ID, nil
}

// GetAgentIdentity returns the current agent Identity.
func (d *AgentInfo) GetAgentIdentity() *Identity {
	return &d.Identity
}

// GetAgentID returns the current agent ID.
func (d *AgentInfo) GetAgentID() string {
	return d.Identity.ID
}

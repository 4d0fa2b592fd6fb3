package broadcast

import (
	"encoding/json"

	"github.com/quids/quids/zkproof"
)

// BridgeMessage is the cross-chain bridge envelope published on
// TopicBridgeMsg (§5): the core defines only this envelope, not the wire
// protocol between chains.
type BridgeMessage struct {
	SourceChainID      uint32          `json:"source_chain_id"`
	DestinationChainID uint32          `json:"destination_chain_id"`
	Payload            []byte          `json:"payload"`
	ValidityProof      *zkproof.ZKProof `json:"validity_proof"`
}

// PublishBridgeMessage JSON-encodes msg and publishes it on
// TopicBridgeMsg.
func PublishBridgeMessage(h *Hub, msg BridgeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.Publish(TopicBridgeMsg, data)
}

package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cmwaters/agora/consensus"
	"github.com/cmwaters/agora/network"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
)

var _ network.Network = (*Network)(nil)

// Network gossips consensus messages over libp2p pubsub. Each namespace is a
// topic.
type Network struct {
	ps     *pubsub.PubSub
	self   peer.ID
	logger zerolog.Logger

	// minTopicSize is the number of peers a publish waits for. Zero publishes
	// straight away and drops the message if nobody is listening.
	minTopicSize int
}

type Option func(*Network)

// WithMinTopicSize makes every publish block until at least n peers have
// joined the topic or the context expires
func WithMinTopicSize(n int) Option {
	return func(pn *Network) {
		pn.minTopicSize = n
	}
}

func NewNetwork(ps *pubsub.PubSub, self peer.ID, logger zerolog.Logger, opts ...Option) *Network {
	pn := &Network{
		ps:     ps,
		self:   self,
		logger: logger,
	}
	for _, opt := range opts {
		opt(pn)
	}
	return pn
}

func (pn *Network) Gossip(namespace []byte) (network.Gossip, error) {
	topic, err := pn.ps.Join(string(namespace))
	if err != nil {
		return nil, err
	}

	pg := &Gossip{
		ps:           pn.ps,
		tp:           topic,
		self:         pn.self,
		logger:       pn.logger,
		minTopicSize: pn.minTopicSize,
	}
	pg.ensureSubscribed()
	return pg, nil
}

var _ network.Gossip = (*Gossip)(nil)

type Gossip struct {
	ps     *pubsub.PubSub
	tp     *pubsub.Topic
	sub    *pubsub.Subscription
	self   peer.ID
	logger zerolog.Logger

	minTopicSize int
	notified     bool
}

// replyTimeout bounds answering a block request
const replyTimeout = 5 * time.Second

func (p *Gossip) BroadcastTransaction(ctx context.Context, tx consensus.Transaction) error {
	return p.publish(ctx, &message{Type: transactionType, Transaction: &tx})
}

func (p *Gossip) BroadcastProposal(ctx context.Context, block *consensus.Block) error {
	return p.publish(ctx, &message{Type: proposalType, Block: block})
}

func (p *Gossip) BroadcastVote(ctx context.Context, vote *consensus.Vote) error {
	return p.publish(ctx, &message{Type: voteType, Vote: vote})
}

func (p *Gossip) RequestBlock(ctx context.Context, hash consensus.Hash) error {
	return p.publish(ctx, &message{Type: blockRequestType, Hash: hash})
}

func (p *Gossip) RespondBlock(ctx context.Context, block *consensus.Block) error {
	return p.publish(ctx, &message{Type: blockResponseType, Block: block})
}

func (p *Gossip) publish(ctx context.Context, msg *message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if p.minTopicSize > 0 {
		return p.tp.Publish(ctx, data, pubsub.WithReadiness(pubsub.MinTopicSize(p.minTopicSize)))
	}
	return p.tp.Publish(ctx, data)
}

// Notify delivers every message from other peers to the notifiee. Messages
// this node published are accepted for relay but not handed back to it.
func (p *Gossip) Notify(notifiee consensus.Notifiee) {
	dedup, err := network.NewDedup(notifiee, network.DefaultSeenCacheSize)
	if err != nil {
		panic(err)
	}
	p.notified = true
	// error can be safely ignored
	_ = p.ps.RegisterTopicValidator(p.tp.String(), func(ctx context.Context, _ peer.ID, pmsg *pubsub.Message) pubsub.ValidationResult {
		var cmsg message
		if err := json.Unmarshal(pmsg.Data, &cmsg); err != nil {
			return pubsub.ValidationReject
		}
		if pmsg.GetFrom() == p.self {
			return pubsub.ValidationAccept
		}

		var err error
		switch cmsg.Type {
		case transactionType:
			if cmsg.Transaction == nil {
				return pubsub.ValidationReject
			}
			err = dedup.OnTransaction(ctx, *cmsg.Transaction)
		case proposalType:
			err = dedup.OnProposal(ctx, cmsg.Block)
		case voteType:
			err = dedup.OnVote(ctx, cmsg.Vote)
		case blockRequestType:
			// answering publishes a message, which must not happen from
			// within the validation pipeline
			go func(hash consensus.Hash) {
				ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
				defer cancel()
				if err := dedup.OnBlockRequest(ctx, hash); err != nil {
					p.logger.Debug().Err(err).Msg("handling block request")
				}
			}(cmsg.Hash)
		case blockResponseType:
			err = dedup.OnBlockResponse(ctx, cmsg.Block)
		default:
			return pubsub.ValidationReject
		}
		if err != nil {
			p.logger.Debug().Err(err).Str("from", pmsg.GetFrom().String()).Msg("rejecting message")
			return pubsub.ValidationReject
		}
		return pubsub.ValidationAccept
	})
}

func (p *Gossip) Close() (err error) {
	if p.sub != nil {
		p.sub.Cancel()
	}
	if p.notified {
		err = errors.Join(err, p.ps.UnregisterTopicValidator(p.tp.String()))
	}
	err = errors.Join(err, p.tp.Close())
	return err
}

// ensureSubscribed maintains one and only subscription for the topic
// PubSub requires at least one subscription in order to work correctly.
// The Network interface does not need the notion of subscribers and relies
// only on validators.
func (p *Gossip) ensureSubscribed() {
	sub, err := p.tp.Subscribe()
	if err != nil {
		return // safe to ignore
	}
	p.sub = sub

	go func() {
		for {
			_, err := sub.Next(context.Background())
			if err != nil {
				// happens when subscription is canceled
				return
			}
			// simply ignore messages
		}
	}()
}

type messageType uint8

const (
	transactionType messageType = iota + 1
	proposalType
	voteType
	blockRequestType
	blockResponseType
)

type message struct {
	Type        messageType
	Transaction *consensus.Transaction `json:",omitempty"`
	Block       *consensus.Block       `json:",omitempty"`
	Vote        *consensus.Vote        `json:",omitempty"`
	Hash        consensus.Hash         `json:",omitempty"`
}

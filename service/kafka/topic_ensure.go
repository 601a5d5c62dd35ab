package kafka

import (
	"errors"
	"fmt"

	"PPRealtime/logger"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopics creates missing topics and grows existing ones up to
// partitions. Kafka never shrinks partitions.
func EnsureTopics(admin sarama.ClusterAdmin, topics []string, partitions int32, rf int16) error {
	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return fmt.Errorf("describe topic %s: %w", t, err)
		}
		exists := len(descs) == 1 && errors.Is(descs[0].Err, sarama.ErrNoError)

		minISR := "1"
		if rf >= 3 {
			minISR = "2"
		}

		if !exists {
			td := &sarama.TopicDetail{
				NumPartitions:     partitions,
				ReplicationFactor: rf,
				ConfigEntries: map[string]*string{
					"cleanup.policy":                 strPtr("delete"),
					"min.insync.replicas":            strPtr(minISR),
					"unclean.leader.election.enable": strPtr("false"),
					"compression.type":               strPtr("producer"),
				},
			}
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists {
					logger.Info("[kafka] topic exists (race)", zap.String("topic", t))
					continue
				}
				if errors.Is(err, sarama.ErrTopicAlreadyExists) {
					logger.Info("[kafka] topic exists (race)", zap.String("topic", t))
					continue
				}
				return fmt.Errorf("create topic %s: %w", t, err)
			}
			logger.Info("[kafka] topic created", zap.String("topic", t), zap.Int32("partitions", partitions), zap.Int16("rf", rf))
			continue
		}

		cur := int32(len(descs[0].Partitions))
		if partitions > cur {
			if err := admin.CreatePartitions(t, partitions, nil, false); err != nil {
				return fmt.Errorf("expand partitions %s from %d to %d: %w", t, cur, partitions, err)
			}
			logger.Info("[kafka] partitions expanded", zap.String("topic", t), zap.Int32("from", cur), zap.Int32("to", partitions))
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

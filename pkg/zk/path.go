package zk

import (
	"fmt"
	"strconv"
)

const (
	BrokerIdsPath    = "/brokers/ids"
	BrokerTopicsPath = "/brokers/topics"
	TopicConfigPath  = "/config/topics"
	DeleteTopicsPath = "/admin/delete_topics"
)

// BrokerPath is the registration znode of a single broker.
func BrokerPath(id int32) string {
	return BrokerIdsPath + "/" + strconv.FormatInt(int64(id), 10)
}

// TopicPath holds the partition assignment of a topic.
func TopicPath(topic string) string {
	return fmt.Sprintf("%s/%s", BrokerTopicsPath, topic)
}

// TopicConfigZnode holds per-topic config overrides.
func TopicConfigZnode(topic string) string {
	return fmt.Sprintf("%s/%s", TopicConfigPath, topic)
}

// DeleteTopicPath is the marker the controller watches to delete a topic asynchronously.
func DeleteTopicPath(topic string) string {
	return fmt.Sprintf("%s/%s", DeleteTopicsPath, topic)
}

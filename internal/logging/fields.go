package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// KeyFields 是针对单个对象 key 的操作日志字段。
func KeyFields(action, key string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"key":    key,
	}
}

// RequestFields 提供请求级字段，供 HTTP 访问日志复用。
func RequestFields(requestID, caller, method, path string, status int) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"caller":     caller,
		"method":     method,
		"path":       path,
		"status":     status,
	}
}

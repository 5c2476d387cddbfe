package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/vendor-outreach/internal/logger"
)

// Record appends an audit entry and mirrors it to the audit log.
// A failed append is logged and swallowed so it never turns into a task retry.
func Record(ctx context.Context, sink AuditSink, subjectID, entryType, description string, metadata map[string]any) {
	fields := logrus.Fields{"subject_id": subjectID, "type": entryType}
	for k, v := range metadata {
		fields[k] = v
	}
	logger.GetAuditLogger().WithFields(fields).Info(description)

	if sink == nil {
		return
	}
	if err := sink.Append(context.WithoutCancel(ctx), subjectID, entryType, description, metadata); err != nil {
		logger.GetAppLogger().WithFields(fields).WithError(err).Error("failed to append audit entry")
	}
}

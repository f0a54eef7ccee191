// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

/*

The render service emits internal logs only: its own operational logs, written
through logrus to stderr unless SetOutput redirects them.

Every lifecycle log line carries the form id and, where known, the client id
and correlation event id as fields, so one request can be followed across the
manager, the per-client record and the status coordinator.

*/
package logging

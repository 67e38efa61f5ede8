/*
NAME
  errors.go

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package lcevccfg

import "github.com/pkg/errors"

var (
	errInvalidEnhancementPID = errors.New("lcevccfg: EnhancementPID must be set for MPEG-TS ingest")
	errMissingInputPath      = errors.New("lcevccfg: InputPath must be set")
)

package access

import (
	"github.com/blueidhq/accesscore/pkg/ossso"
	"github.com/blueidhq/accesscore/pkg/primitives"
)

// ProcessConfig parameterises one evaluation pass.
type ProcessConfig struct {
	SiteId              uint16
	DoorId              uint16
	WritePendingEvents  bool
	UpdateFromBlacklist bool
	TimestampIsInvalid  bool
	// GetGroupSchedules resolves a door-group id to the schedules gating
	// it; ok is false when the group has no schedules configured, in
	// which case the caller must skip the DoorInfo record entirely.
	GetGroupSchedules func(groupId uint16) (schedules []ossso.DTSchedule, ok bool)
}

// Process bundles the caller-supplied handler operations the evaluator
// invokes along the way.
type Process struct {
	// ProcessProprietaryCredentialType decides grant/deny for a
	// non-OSS credential; the evaluator does not interpret the payload.
	ProcessProprietaryCredentialType func(credType ossso.CredentialType, credId ossso.CredentialId) (granted bool, accessType ossso.AccessType, err error)
	// VerifyCredentialIdIsNotBlacklisted is an additional, possibly
	// external, blacklist check layered on top of the card's own
	// Blacklist file.
	VerifyCredentialIdIsNotBlacklisted func(credId ossso.CredentialId) bool
	UpdateBlacklist                    func(bf ossso.BlacklistFile) error
	QueryPendingEvents                 func() []ossso.Event
	StoreEvent                         func(ev ossso.Event) error
	GrantAccess                        func(accessType ossso.AccessType, scheduleEndTime *primitives.LocalTimestamp) error
	DenyAccess                         func(info ossso.EventInfo) error
}

// Result is the outcome of one Evaluate call.
type Result struct {
	Granted         bool
	AccessType      ossso.AccessType
	ScheduleEndTime *primitives.LocalTimestamp
	Info            ossso.EventInfo
}

func eventInfoForAccessType(t ossso.AccessType) ossso.EventInfo {
	switch t {
	case ossso.AccessToggle:
		return ossso.InfoToggle
	case ossso.AccessExtendedTime:
		return ossso.InfoExtendedTime
	default:
		return ossso.InfoDefaultTime
	}
}

func (p Process) storeEvent(ev ossso.Event) {
	if p.StoreEvent == nil {
		return
	}
	_ = p.StoreEvent(ev)
}

func (p Process) grant(now primitives.LocalTimestamp, doorId uint16, accessType ossso.AccessType, end *primitives.LocalTimestamp) (Result, error) {
	info := eventInfoForAccessType(accessType)
	p.storeEvent(ossso.Event{Timestamp: now, DoorId: doorId, EventId: ossso.EventAccessGranted, EventInfo: info})
	if p.GrantAccess != nil {
		if err := p.GrantAccess(accessType, end); err != nil {
			return Result{}, err
		}
	}
	return Result{Granted: true, AccessType: accessType, ScheduleEndTime: end, Info: info}, nil
}

func (p Process) deny(now primitives.LocalTimestamp, doorId uint16, info ossso.EventInfo) (Result, error) {
	p.storeEvent(ossso.Event{Timestamp: now, DoorId: doorId, EventId: ossso.EventAccessDenied, EventInfo: info})
	if p.DenyAccess != nil {
		if err := p.DenyAccess(info); err != nil {
			return Result{}, err
		}
	}
	return Result{Granted: false, Info: info}, nil
}

// blacklisted combines the card's own Blacklist file with the handler's
// (possibly external) check.
func blacklisted(store Storage, proc Process, now primitives.LocalTimestamp, credId ossso.CredentialId) (bool, error) {
	bf, err := ossso.ReadBlacklistFile(store)
	if err != nil {
		return false, err
	}
	if bf.Contains(credId, now) {
		return true, nil
	}
	if proc.VerifyCredentialIdIsNotBlacklisted != nil && !proc.VerifyCredentialIdIsNotBlacklisted(credId) {
		return true, nil
	}
	return false, nil
}

func needsReadWrite(cfg ProcessConfig) Mode {
	if cfg.WritePendingEvents || cfg.UpdateFromBlacklist {
		return ModeReadWrite
	}
	return ModeRead
}

// Evaluate runs the full access-evaluation pipeline (spec §4.7) against
// store for the credential currently presented, returning the grant/deny
// decision. now is the evaluator's notion of current time.
func Evaluate(now primitives.LocalTimestamp, store Storage, cfg ProcessConfig, proc Process) (Result, error) {
	if err := store.Prepare(needsReadWrite(cfg)); err != nil {
		return Result{}, err
	}

	info, err := ossso.ReadInfo(store)
	if err != nil {
		return Result{}, err
	}

	if info.CredentialType.IsProprietary() {
		if proc.ProcessProprietaryCredentialType == nil {
			return Result{}, errKind("Evaluate", KindUnhandledProprietaryType, nil)
		}
		granted, accessType, err := proc.ProcessProprietaryCredentialType(info.CredentialType, info.CredentialId)
		if err != nil {
			return Result{}, err
		}
		if !granted {
			return proc.deny(now, cfg.DoorId, ossso.InfoNoAccess)
		}
		return proc.grant(now, cfg.DoorId, accessType, nil)
	}

	if info.CredentialType.IsInterventionMedia() {
		isBlacklisted, err := blacklisted(store, proc, now, info.CredentialId)
		if err != nil {
			return Result{}, err
		}
		if isBlacklisted {
			proc.storeEvent(ossso.Event{Timestamp: now, DoorId: cfg.DoorId, EventId: ossso.EventBlacklistedCredentialDetected})
			bestEffortWritePending(store, proc, cfg)
			return proc.deny(now, cfg.DoorId, ossso.InfoNoAccessBlacklisted)
		}
		return proc.grant(now, cfg.DoorId, ossso.AccessDefaultTime, nil)
	}

	if cfg.TimestampIsInvalid {
		return proc.deny(now, cfg.DoorId, ossso.InfoNoAccess)
	}

	data, err := ossso.ReadData(store)
	if err != nil {
		return Result{}, err
	}
	if data.SiteId != cfg.SiteId {
		return proc.deny(now, cfg.DoorId, ossso.InfoNoAccess)
	}

	isBlacklisted, err := blacklisted(store, proc, now, info.CredentialId)
	if err != nil {
		return Result{}, err
	}
	if isBlacklisted {
		proc.storeEvent(ossso.Event{Timestamp: now, DoorId: cfg.DoorId, EventId: ossso.EventBlacklistedCredentialDetected})
		bestEffortWritePending(store, proc, cfg)
		return proc.deny(now, cfg.DoorId, ossso.InfoNoAccessBlacklisted)
	}

	if !data.Validity.IsZero() && now.ToUnix() > data.Validity.ToUnix() {
		bestEffortWritePending(store, proc, cfg)
		return proc.deny(now, cfg.DoorId, ossso.InfoNoAccessValidity)
	}
	if data.HasExtensions {
		ce, err := ossso.ReadCustomerExtensions(store)
		if err != nil {
			return Result{}, err
		}
		validityStart, ok, err := ce.ValidityStart()
		if err != nil {
			return Result{}, err
		}
		if ok && now.ToUnix() < validityStart.ToUnix() {
			bestEffortWritePending(store, proc, cfg)
			return proc.deny(now, cfg.DoorId, ossso.InfoNoAccessValidity)
		}
	}

	evalResult := evaluateDoorsAndSchedules(now, data, cfg)

	bestEffortUpdate(store, proc, cfg, now)
	bestEffortWritePending(store, proc, cfg)

	if evalResult.granted {
		return proc.grant(now, cfg.DoorId, evalResult.accessType, evalResult.scheduleEndTime)
	}
	if evalResult.scheduleMismatch {
		return proc.deny(now, cfg.DoorId, ossso.InfoDTSchedule)
	}
	return proc.deny(now, cfg.DoorId, ossso.InfoNoAccess)
}

func bestEffortWritePending(store Storage, proc Process, cfg ProcessConfig) {
	if !cfg.WritePendingEvents || proc.QueryPendingEvents == nil {
		return
	}
	for _, ev := range proc.QueryPendingEvents() {
		proc.storeEvent(ev)
	}
}

func bestEffortUpdate(store Storage, proc Process, cfg ProcessConfig, now primitives.LocalTimestamp) {
	if !cfg.UpdateFromBlacklist || proc.UpdateBlacklist == nil {
		return
	}
	bf, err := ossso.ReadBlacklistFile(store)
	if err != nil {
		return
	}
	_ = proc.UpdateBlacklist(bf)
}

package plugins

import (
	"context"

	"bnpl/internal/logging"
	"bnpl/internal/media/fpcalc"
	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

// UID assigns content-addressed identifiers from chromaprint fingerprints.
type UID struct {
	plugin.Base
}

// NewUID returns the fpcalc.uid transformer.
func NewUID() *UID {
	return &UID{Base: plugin.NewBase("uid", plugin.CapTransformer,
		"Use chromaprint's fpcalc to assign a sound uid.",
		option.New("fpcalc_path", option.KindString,
			option.Describe("fpcalc binary; defaults to tools.fpcalc")),
		plugin.PoolSizeOption(),
	)}
}

// Transform fingerprints the local file. The uid is derived from the
// fingerprint; duration and fingerprint are kept as properties.
func (u *UID) Transform(ctx context.Context, call *plugin.Call, s *sound.Sound) (*sound.Sound, error) {
	if !s.IsLocal() {
		return nil, services.Wrap(services.ErrPrecondition, call.Key, "fingerprint", "no local file at "+s.Path, nil)
	}
	result, err := fpcalc.Run(ctx, binary(call, "fpcalc_path", call.Config().Tools.Fpcalc), s.Path)
	if err != nil {
		return nil, err
	}
	out := s.Clone()
	if result.Fingerprint != "" {
		out.UID = call.Naming().UID(result.Fingerprint)
	}
	if err := out.SetProperty("duration", result.Duration); err != nil {
		return nil, err
	}
	if err := out.SetProperty("fingerprint", result.Fingerprint); err != nil {
		return nil, err
	}
	call.Log().DebugContext(ctx, "fingerprinted sound",
		logging.String(logging.FieldSoundUID, out.UID),
		logging.String("path", s.Path))
	return out, nil
}

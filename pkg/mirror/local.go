package mirror

import (
	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/vost"
)

// LocalTransport mirrors against another repository opened on the same
// filesystem, exercised directly without a wire protocol.
type LocalTransport struct {
	remote *vost.Repository
}

func NewLocalTransport(remote *vost.Repository) *LocalTransport {
	return &LocalTransport{remote: remote}
}

func (t *LocalTransport) ListRefs() (map[string]object.Hash, error) {
	return LocalRefs(t.remote)
}

// Fetch copies every object reachable from wanted's tips from the remote
// store into local's store.
func (t *LocalTransport) Fetch(local *vost.Repository, wanted map[string]object.Hash) error {
	tips := make([]object.Hash, 0, len(wanted))
	for _, id := range wanted {
		tips = append(tips, id)
	}
	order, objs, err := collectReachable(t.remote.ObjectStore(), tips)
	if err != nil {
		return err
	}
	for _, id := range order {
		o := objs[id]
		if _, err := local.ObjectStore().Write(o.Type, o.Data); err != nil {
			return err
		}
	}
	return nil
}

// Push applies refspecs against the remote repository directly: copies
// the objects local's tips need, then force-sets or deletes each ref.
func (t *LocalTransport) Push(local *vost.Repository, refspecs []RefUpdate) error {
	tips := make([]object.Hash, 0, len(refspecs))
	for _, u := range refspecs {
		if !u.New.IsZero() {
			tips = append(tips, u.New)
		}
	}
	order, objs, err := collectReachable(local.ObjectStore(), tips)
	if err != nil {
		return err
	}
	for _, id := range order {
		o := objs[id]
		if _, err := t.remote.ObjectStore().Write(o.Type, o.Data); err != nil {
			return err
		}
	}
	for _, u := range refspecs {
		current, err := t.remote.RefStore().ReadHash(u.Name)
		if err != nil {
			return err
		}
		if u.New.IsZero() {
			if err := t.remote.RefStore().Delete(u.Name); err != nil {
				return err
			}
			continue
		}
		if err := t.remote.RefStore().CASUpdate(u.Name, current, u.New, "mirror push: "+u.Name); err != nil {
			return err
		}
	}
	return nil
}

func (t *LocalTransport) Close() error { return nil }

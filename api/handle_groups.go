package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cloudhut/kafka-web/groups"
)

type groupResponse struct {
	GroupID      string `json:"groupId"`
	State        string `json:"state"`
	ProtocolType string `json:"protocolType"`
	Members      int    `json:"members"`
	UIManaged    bool   `json:"uiManaged"`
}

func (s *Server) listGroups(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()
	adm, err := s.deps.Connector.NewAdmin("api-list-groups")
	if err != nil {
		return nil, err
	}
	defer adm.Close()

	listed, err := adm.ListConsumerGroups(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]groupResponse, len(listed))
	if len(listed) == 0 {
		return res, nil
	}

	groupIDs := make([]string, len(listed))
	for i, g := range listed {
		groupIDs[i] = g.GroupID
	}
	described, err := adm.DescribeConsumerGroups(ctx, groupIDs...)
	if err != nil {
		return nil, err
	}
	members := make(map[string]int, len(described))
	for _, d := range described {
		members[d.GroupID] = len(d.Members)
	}

	for i, g := range listed {
		res[i] = groupResponse{
			GroupID:      g.GroupID,
			State:        g.State,
			ProtocolType: g.ProtocolType,
			Members:      members[g.GroupID],
			UIManaged:    s.deps.Remover.IsUIManaged(g.GroupID),
		}
	}
	return res, nil
}

func (s *Server) deleteGroup(c *gin.Context) (interface{}, error) {
	groupID, err := requireParam(c, "group")
	if err != nil {
		return nil, err
	}
	force := false
	if forceParam := c.Query("force"); forceParam != "" {
		force, err = strconv.ParseBool(forceParam)
		if err != nil {
			return nil, invalidArgument("delete consumer group", err)
		}
	}

	res, err := s.deps.Remover.Delete(c.Request.Context(), groupID, force)
	return s.groupRemoved(res, err)
}

func (s *Server) forceRemoveGroup(c *gin.Context) (interface{}, error) {
	groupID, err := requireParam(c, "group")
	if err != nil {
		return nil, err
	}

	res, err := s.deps.Remover.ForceRemove(c.Request.Context(), groupID)
	return s.groupRemoved(res, err)
}

func (s *Server) groupRemoved(res groups.Result, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	s.deps.Lag.InvalidateGroups()
	return res, nil
}
